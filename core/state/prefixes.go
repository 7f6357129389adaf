package state

var (
	launchRecordPrefix = []byte("launch/record")
	bidRecordPrefix    = []byte("launch/bid/")
	tokenPrefix        = []byte("token/")
	balancePrefix      = []byte("balance/")
)
