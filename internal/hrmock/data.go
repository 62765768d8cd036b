package hrmock

// LeaveEntry is one scheduled absence.
type LeaveEntry struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// Leave holds the leave balances of one employee.
type Leave struct {
	EmployeeName          string       `json:"employee_name"`
	Year                  int          `json:"year"`
	TotalVacationDays     int          `json:"total_vacation_days"`
	UsedVacationDays      int          `json:"used_vacation_days"`
	RemainingVacationDays int          `json:"remaining_vacation_days"`
	CarriedOverDays       int          `json:"carried_over_days"`
	SickDaysTotal         int          `json:"sick_days_total"`
	SickDaysUsed          int          `json:"sick_days_used"`
	SickDaysRemaining     int          `json:"sick_days_remaining"`
	UpcomingLeave         []LeaveEntry `json:"upcoming_leave"`
}

// Profile is an employee record.
type Profile struct {
	EmployeeID     string `json:"employee_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Department     string `json:"department"`
	Position       string `json:"position"`
	Manager        string `json:"manager"`
	Location       string `json:"location"`
	StartDate      string `json:"start_date"`
	EmploymentType string `json:"employment_type"`
	Team           string `json:"team"`
}

// Deductions are the monthly payroll deductions.
type Deductions struct {
	IncomeTax           float64 `json:"income_tax"`
	SocialSecurity      float64 `json:"social_security"`
	PensionContribution float64 `json:"pension_contribution"`
	HealthInsurance     float64 `json:"health_insurance"`
}

// Payslip is the latest payslip of one employee.
type Payslip struct {
	EmployeeName string     `json:"employee_name"`
	GrossSalary  float64    `json:"gross_salary"`
	NetSalary    float64    `json:"net_salary"`
	Currency     string     `json:"currency"`
	PayFrequency string     `json:"pay_frequency"`
	LastPayDate  string     `json:"last_pay_date"`
	NextPayDate  string     `json:"next_pay_date"`
	Deductions   Deductions `json:"deductions"`
	YTDGross     float64    `json:"ytd_gross"`
	YTDNet       float64    `json:"ytd_net"`
}

// Dataset is everything the mock service serves, keyed by employee ID.
type Dataset struct {
	Leave    map[string]Leave
	Profiles map[string]Profile
	Payslips map[string]Payslip
}

// DefaultDataset returns the two demo employees.
func DefaultDataset() Dataset {
	return Dataset{
		Leave: map[string]Leave{
			"EMP001": {
				EmployeeName:          "Om Doshi",
				Year:                  2026,
				TotalVacationDays:     25,
				UsedVacationDays:      13,
				RemainingVacationDays: 12,
				CarriedOverDays:       3,
				SickDaysTotal:         30,
				SickDaysUsed:          4,
				SickDaysRemaining:     26,
				UpcomingLeave: []LeaveEntry{
					{Start: "2026-03-15", End: "2026-03-19", Type: "vacation", Status: "approved"},
					{Start: "2026-04-10", End: "2026-04-10", Type: "personal", Status: "pending"},
				},
			},
			"EMP002": {
				EmployeeName:          "Klahm Sebestian",
				Year:                  2026,
				TotalVacationDays:     25,
				UsedVacationDays:      8,
				RemainingVacationDays: 17,
				CarriedOverDays:       5,
				SickDaysTotal:         30,
				SickDaysUsed:          2,
				SickDaysRemaining:     28,
				UpcomingLeave:         []LeaveEntry{},
			},
		},
		Profiles: map[string]Profile{
			"EMP001": {
				EmployeeID:     "EMP001",
				Name:           "Om Doshi",
				Email:          "omdoshi2@trenkwalder.com",
				Department:     "Engineering",
				Position:       "Senior Full-Stack Developer",
				Manager:        "Thomas Berger",
				Location:       "Remote (Ireland)",
				StartDate:      "2025-06-01",
				EmploymentType: "Full-time",
				Team:           "Platform Engineering",
			},
			"EMP002": {
				EmployeeID:     "EMP002",
				Name:           "Klahm Sebestian",
				Email:          "klahm.sebestian@trenkwalder.com",
				Department:     "Engineering",
				Position:       "Backend Developer",
				Manager:        "Thomas Berger",
				Location:       "Munich, DE",
				StartDate:      "2024-01-15",
				EmploymentType: "Full-time",
				Team:           "Platform Engineering",
			},
		},
		Payslips: map[string]Payslip{
			"EMP001": {
				EmployeeName: "Om Doshi",
				GrossSalary:  6500,
				NetSalary:    4200,
				Currency:     "EUR",
				PayFrequency: "monthly",
				LastPayDate:  "2026-01-31",
				NextPayDate:  "2026-02-28",
				Deductions:   Deductions{IncomeTax: 1450, SocialSecurity: 650, PensionContribution: 195, HealthInsurance: 5},
				YTDGross:     6500,
				YTDNet:       4200,
			},
			"EMP002": {
				EmployeeName: "Klahm Sebestian",
				GrossSalary:  5500,
				NetSalary:    3600,
				Currency:     "EUR",
				PayFrequency: "monthly",
				LastPayDate:  "2026-01-31",
				NextPayDate:  "2026-02-28",
				Deductions:   Deductions{IncomeTax: 1200, SocialSecurity: 550, PensionContribution: 165, HealthInsurance: 5},
				YTDGross:     5500,
				YTDNet:       3600,
			},
		},
	}
}
