package environment

type CheckStatus int

const (
	CheckStatusOK CheckStatus = iota
	CheckStatusWarning
	CheckStatusError
)

type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Detail  string
}

// HasErrors reports whether any result has CheckStatusError.
func HasErrors(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == CheckStatusError {
			return true
		}
	}
	return false
}
