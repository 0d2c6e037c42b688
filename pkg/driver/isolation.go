package driver

// IsolationLevel is the consistency guarantee a transaction requests from
// the underlying engine.
type IsolationLevel int

const (
	// LevelUnspecified means the caller has no opinion; the connection's
	// current level stays untouched. It never reaches the engine.
	LevelUnspecified IsolationLevel = iota
	LevelNone
	LevelReadUncommitted
	LevelReadCommitted
	LevelRepeatableRead
	LevelSerializable
)

func (l IsolationLevel) String() string {
	switch l {
	case LevelUnspecified:
		return "UNSPECIFIED"
	case LevelNone:
		return "NONE"
	case LevelReadUncommitted:
		return "READ UNCOMMITTED"
	case LevelReadCommitted:
		return "READ COMMITTED"
	case LevelRepeatableRead:
		return "REPEATABLE READ"
	case LevelSerializable:
		return "SERIALIZABLE"
	default:
		return "UNKNOWN"
	}
}
