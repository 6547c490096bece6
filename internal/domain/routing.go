package domain

// SpecialistName identifies which specialist answers a message.
type SpecialistName string

const (
	// SpecialistOrderLookup handles order status, tracking, and order
	// search questions.
	SpecialistOrderLookup SpecialistName = "order_lookup"
	// SpecialistFAQ handles policy and general support questions. It is
	// also the fallback for ambiguous input.
	SpecialistFAQ SpecialistName = "faq"
)

// RoutingDecision is the per-message output of the routing engine.
// It is ephemeral and recomputed for every message.
type RoutingDecision struct {
	Specialist SpecialistName `json:"specialist"`
	Confidence float64        `json:"confidence"`
}
