package consent

// Record status values produced by the reference client.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// optionalCategories are the non-essential categories the reference client
// reports. Necessary cookies are always on and do not affect status.
var optionalCategories = []string{"functional", "analytics", "performance", "advertisement"}

// DeriveStatus computes the status the reference client sends: rejected
// only when every optional category is present and explicitly false.
func DeriveStatus(categories map[string]bool) string {
	for _, c := range optionalCategories {
		granted, ok := categories[c]
		if !ok || granted {
			return StatusAccepted
		}
	}
	return StatusRejected
}
