package discovery

// Phase is the state of a discovery session.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseScanning
	PhaseShortRangeDiscovery
	PhaseMulticastDiscovery
	PhaseDone
	PhaseCancelled
)

// String returns a stable identifier for logs and the WebSocket API.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "init"
	case PhaseScanning:
		return "scanning"
	case PhaseShortRangeDiscovery:
		return "short_range_discovery"
	case PhaseMulticastDiscovery:
		return "multicast_discovery"
	case PhaseDone:
		return "done"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseCancelled
}

// Progress labels shown to users at each phase transition.
const (
	LabelScanning            = "Scanning for Bluetooth LE devices"
	LabelShortRange          = "Discovering Bluetooth LE devices"
	LabelShortRangeWhitelist = "Discovering whitelisted Bluetooth LE devices"
	LabelMulticast           = "Discovering IP devices"
	LabelDone                = "Discovery finished"
	LabelCancelled           = "Discovery cancelled"
)

// Progress is a non-authoritative notification emitted on every phase
// transition.
type Progress struct {
	Session string `json:"session"`
	Phase   Phase  `json:"-"`
	Label   string `json:"label"`

	// Host is set while a specific short-range host is being queried.
	Host string `json:"host,omitempty"`

	// Resources is the number of resources recorded so far.
	Resources int `json:"resources"`
}
