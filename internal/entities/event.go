package entities

// DomainEvent is emitted after a successful mutation by a user.
type DomainEvent struct {
	UserID int64
	Name   string
	Data   interface{}
}
