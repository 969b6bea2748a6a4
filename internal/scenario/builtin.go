// File: internal/scenario/builtin.go
package scenario

// PartialSettleName is the name of the built-in scenario.
const PartialSettleName = "partial-settle"

// PartialSettle opens the orders back office, settles part of the first open order in
// cash and captures the result in verification.png.
func PartialSettle() Scenario {
	return New(PartialSettleName).
		Navigate("").
		Click("text=Settle Change").
		WaitForSelector(`div[role="dialog"]`).
		Fill("#settle-amount", "5").
		Click("text=Settle Cash").
		Screenshot("verification.png", false).
		MustBuild()
}

// Builtin returns the built-in scenario registered under name.
func Builtin(name string) (Scenario, bool) {
	switch name {
	case PartialSettleName:
		return PartialSettle(), true
	}
	return Scenario{}, false
}
