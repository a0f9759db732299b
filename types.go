package lockstep

// TokenPair carries one issued access/refresh pair. By the time a pair is
// returned, the refresh token's record is already persisted.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
