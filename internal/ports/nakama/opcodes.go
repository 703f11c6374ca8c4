package nakama

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpPlayPiece int64 = 1
	OpPassTurn  int64 = 2
	OpAutoPlay  int64 = 3

	// Server -> Client events
	OpActionAck     int64 = 101
	OpMatchUpdated  int64 = 102
	OpPlayerUpdated int64 = 103
	OpMatchSnapshot int64 = 104 // full state, sent on join and resync
)
