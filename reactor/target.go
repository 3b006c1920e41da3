package reactor

// targetKind selects where an internal message is routed once enqueued,
// per spec.md §4.3: "(a) the reactor's own internal table, (b) one
// specific link's internal table, or (c) all links' internal tables".
type targetKind int

const (
	targetReactor targetKind = iota
	targetLink
	targetAllLinks
)

// Target selects the recipient of an internally-enqueued message.
type Target struct {
	kind targetKind
	peer ID
}

// ToReactor targets the reactor's own internal handler table.
func ToReactor() Target { return Target{kind: targetReactor} }

// ToLink targets one specific link's internal handler table, identified
// by its peer reactor ID.
func ToLink(peer ID) Target { return Target{kind: targetLink, peer: peer} }

// ToAllLinks targets every open link's internal handler table.
func ToAllLinks() Target { return Target{kind: targetAllLinks} }
