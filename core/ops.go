package core

import (
	"runclub/native/runclub"
	"runclub/native/token"
)

// Bootstrap is not subject to module pauses.
var OpInitialize = Op{Name: "initialize"}

var (
	OpCreateClub   = Op{Module: runclub.ModuleName, Name: "create_club"}
	OpActivate     = Op{Module: runclub.ModuleName, Name: "activate"}
	OpDeposit      = Op{Module: runclub.ModuleName, Name: "deposit"}
	OpFundClub     = Op{Module: runclub.ModuleName, Name: "fund_club"}
	OpRemoveClub   = Op{Module: runclub.ModuleName, Name: "remove_club"}
	OpAddMember    = Op{Module: runclub.ModuleName, Name: "add_member"}
	OpRemoveMember = Op{Module: runclub.ModuleName, Name: "remove_member"}
	OpAddKm        = Op{Module: runclub.ModuleName, Name: "add_km"}
	OpRedeem       = Op{Module: runclub.ModuleName, Name: "redeem"}

	OpMint     = Op{Module: token.ModuleName, Name: "mint"}
	OpTransfer = Op{Module: token.ModuleName, Name: "transfer"}
	OpBurn     = Op{Module: token.ModuleName, Name: "burn"}
)
