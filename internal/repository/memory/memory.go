package memory

import (
	"fraudguard/internal/repository"
)

var (
	_ repository.ProfileStore            = (*ProfileRepository)(nil)
	_ repository.RecentTransactionLookup = (*VelocityRepository)(nil)
	_ repository.AlertStore              = (*AlertRepository)(nil)
)
