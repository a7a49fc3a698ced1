package importer

// State is the import driver state.
type State int32

const (
	StateIdle State = iota
	StateFetchHeight
	StateProcessHeight
	StateRetrying
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchHeight:
		return "fetch_height"
	case StateProcessHeight:
		return "process_height"
	case StateRetrying:
		return "retrying"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
