package domain

// Safety — трёхзначная классификация лицензионного риска ленты.
// Булева не подходит: «ещё не проверено» должно отличаться от обеих крайностей.
type Safety string

const (
	SafetySafe   Safety = "safe"
	SafetyReview Safety = "review"
	SafetyUnsafe Safety = "unsafe"
)

// Safety вычисляет классификацию ленты по статусу лицензии и результатам проверок.
// unsafe — лицензия явно запрещает перепечатку; safe — лицензия свободная и все
// проверки пройдены; всё остальное требует ручного ревью.
func (f SourceFeed) Safety() Safety {
	if f.LicenseStatus == LicenseRestricted {
		return SafetyUnsafe
	}
	if f.LicenseStatus != LicenseUnrestricted {
		return SafetyReview
	}
	if len(f.SafetyChecks) == 0 {
		return SafetyReview
	}
	for _, passed := range f.SafetyChecks {
		if !passed {
			return SafetyReview
		}
	}
	return SafetySafe
}
