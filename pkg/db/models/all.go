package models

// All lists every persisted model, in dependency order, for schema bootstrap
// in sqlite mode and tests.
func All() []any {
	return []any{
		&Organization{},
		&Member{},
		&Plan{},
		&Membership{},
		&Payment{},
		&OnboardingInvite{},
	}
}
