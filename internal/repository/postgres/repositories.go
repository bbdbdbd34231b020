package postgres

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Accounts     *AccountRepository
	Tokens       *RefreshTokenRepository
	Payments     *PaymentRepository
	Applications *ApplicationRepository
	Store        *Store
}

// NewRepositories wires all repositories backed by the provided executor, normally a *pgxpool.Pool.
func NewRepositories(exec pgExecutor) *Repositories {
	return &Repositories{
		Accounts:     NewAccountRepository(exec),
		Tokens:       NewRefreshTokenRepository(exec),
		Payments:     NewPaymentRepository(exec),
		Applications: NewApplicationRepository(exec),
		Store:        NewStore(exec),
	}
}
