package state

var (
	runClubCounterKeyBytes = []byte("runclub/counter")
	runClubRecordPrefix    = []byte("runclub/club/")
	runClubKmPrefix        = []byte("runclub/km/")

	tokenMetadataPrefix = []byte("token/meta/")
	tokenBalancePrefix  = []byte("token/balance/")
	tokenSupplyPrefix   = []byte("token/supply/")
)
