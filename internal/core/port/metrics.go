package port

// AuthMetrics records outcomes of registration and token verification.
type AuthMetrics interface {
	ObserveRegistration(outcome string)
	ObserveTokenVerification(result string)
}

// NopAuthMetrics discards all observations.
type NopAuthMetrics struct{}

func (NopAuthMetrics) ObserveRegistration(string) {}

func (NopAuthMetrics) ObserveTokenVerification(string) {}
