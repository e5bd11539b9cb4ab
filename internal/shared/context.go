package shared

// ActorHeader carries the acting user's id on API requests. Session and
// authentication wiring live outside the core; handlers trust the header
// the outer layer injects.
const ActorHeader = "X-Actor-ID"
