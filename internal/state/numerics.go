package state

// Numeric reply codes, named per RFC 2812 plus the IRCv3 extensions
// this server speaks (SASL, labeled-response's ACK, BATCH, TAGMSG,
// SETNAME, ACCOUNT, ERR_INPUTTOOLONG). Prefixed num* (not rpl*/err*)
// so they never collide with the sentinel error values in channel.go
// and network.go.
const (
	numWelcome  = "001"
	numYourHost = "002"
	numCreated  = "003"
	numMyInfo   = "004"
	numISupport = "005"

	numAway    = "301"
	numUnAway  = "305"
	numNowAway = "306"

	numWhoisUser     = "311"
	numWhoisServer   = "312"
	numWhoisOperator = "313"
	numEndOfWho      = "315"
	numWhoisIdle     = "317"
	numEndOfWhois    = "318"
	numWhoisChannels = "319"

	numListStart     = "321"
	numList          = "322"
	numListEnd       = "323"
	numChannelModeIs = "324"
	numNoTopic       = "331"
	numTopic         = "332"
	numTopicWhoTime  = "333"
	numInviting      = "341"
	numWhoReply      = "352"
	numNamReply      = "353"
	numEndOfNames    = "366"
	numBanList       = "367"
	numEndOfBanList  = "368"
	numInfo          = "371"
	numMotd          = "372"
	numEndOfInfo     = "374"
	numMotdStart     = "375"
	numEndOfMotd     = "376"
	numYoureOper     = "381"
	numRehashing     = "382"
	numTime          = "391"
	numVersion       = "351"
	numLuserClient   = "251"
	numLuserOp       = "252"
	numLuserUnknown  = "253"
	numLuserChannels = "254"
	numLuserMe       = "255"
	numAdminMe       = "256"
	numAdminLoc1     = "257"
	numAdminLoc2     = "258"
	numAdminEmail    = "259"
	numExceptList    = "348"
	numEndOfExceptList = "349"
	numInviteList    = "346"
	numEndOfInviteList = "347"
	numUModeIs       = "221"

	numLoggedIn    = "900"
	numSaslSuccess = "903"
	numSaslFail    = "904"
	numSaslTooLong = "905"
	numSaslAborted = "906"
	numSaslAlready = "907"
	numSaslMechs   = "908"

	numNoSuchNick         = "401"
	numNoSuchChannel      = "403"
	numCannotSendToChan   = "404"
	numNoRecipient        = "411"
	numNoTextToSend       = "412"
	numUnknownCommand     = "421"
	numNoMotd             = "422"
	numNoNicknameGiven    = "431"
	numErroneousNickname  = "432"
	numNicknameInUse      = "433"
	numUserNotInChannel   = "441"
	numNotOnChannel       = "442"
	numNotRegistered      = "451"
	numNeedMoreParams     = "461"
	numAlreadyRegistered  = "462"
	numPasswdMismatch     = "464"
	numChannelIsFull      = "471"
	numInviteOnlyChan     = "473"
	numBannedFromChan     = "474"
	numBadChannelKey      = "475"
	numNoPrivileges       = "481"
	numChanOpPrivsNeeded  = "482"
	numUsersDontMatch     = "502"
	numInputTooLong       = "417"
	numUnknownMode        = "472"
	numKeySet             = "467"
	numNoOperHost         = "491"

	numInvalidCapCmd = "410"
)
