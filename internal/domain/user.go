package domain

// User is an end user known to the broker. The ID is the mrauth user ID and
// doubles as the primary key. Users are created on first successful login and
// are never deleted by this service.
type User struct {
	ID string
}
