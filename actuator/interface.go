package actuator

// Relay is one motor direction. Both methods must be idempotent.
type Relay interface {
	Name() string
	Energize() error
	Deenergize() error
}
