package onboarding

// 默认问卷的步骤 ID，与客户端本地存储的键保持一致。
const (
	StepWelcome                   StepID = "welcome"
	StepGender                    StepID = "gender"
	StepAgeGroup                  StepID = "ageGroup"
	StepEmploymentType            StepID = "employmentType"
	StepDependents                StepID = "dependents"
	StepSmoking                   StepID = "smoking"
	StepAlcohol                   StepID = "alcohol"
	StepExerciseFrequency         StepID = "exerciseFrequency"
	StepFitnessLevel              StepID = "fitnessLevel"
	StepPreExistingConditions     StepID = "preExistingConditions"
	StepKnownConditions           StepID = "knownConditions"
	StepHospitalizedPast5Years    StepID = "hospitalizedPast5Years"
	StepRegularMedications        StepID = "regularMedications"
	StepMonthlyIncome             StepID = "monthlyIncome"
	StepExistingInsurancePolicies StepID = "existingInsurancePolicies"
	StepInsuranceBeneficiary      StepID = "insuranceBeneficiary"
	StepInsuranceTypesOwned       StepID = "insuranceTypesOwned"
	StepConfirmation              StepID = "confirmation"
)

const (
	labelPersonal  = "Personal Information"
	labelLifestyle = "Lifestyle"
	labelMedical   = "Medical History"
	labelFinancial = "Financial"
)

func opts(values ...string) []Option {
	out := make([]Option, len(values))
	for i, v := range values {
		out[i] = Option{Value: v, Label: v}
	}
	return out
}

var yesNo = opts("Yes", "No")

func personal(id StepID, question string, options []Option) Step {
	return Step{ID: id, Category: CategoryPersonal, CategoryLabel: labelPersonal, Title: labelPersonal,
		Question: question, Type: TypeSingle, Options: options}
}

func lifestyle(id StepID, question string, options []Option) Step {
	return Step{ID: id, Category: CategoryLifestyle, CategoryLabel: labelLifestyle, Title: labelLifestyle,
		Question: question, Type: TypeSingle, Options: options}
}

func medical(id StepID, question string, options []Option) Step {
	return Step{ID: id, Category: CategoryMedical, CategoryLabel: labelMedical, Title: labelMedical,
		Question: question, Type: TypeSingle, Options: options}
}

func financial(id StepID, question string, options []Option) Step {
	return Step{ID: id, Category: CategoryFinancial, CategoryLabel: labelFinancial, Title: labelFinancial,
		Question: question, Type: TypeSingle, Options: options}
}

// endOfCategory 分组最后一步需要用户点击按钮继续，不自动前进。
func endOfCategory(s Step, advanceLabel string) Step {
	s.CategoryTerminal = true
	s.AdvanceLabel = advanceLabel
	return s
}

func multiple(s Step) Step {
	s.Type = TypeMultiple
	return s
}

var defaultSteps = []Step{
	{
		ID:           StepWelcome,
		Category:     CategoryWelcome,
		Title:        "Crafting Your Personalized Risk Portfolio",
		Question:     "Setup takes only 2-3 mins",
		Type:         TypeInfo,
		AdvanceLabel: "Let's Get Started",
	},

	personal(StepGender, "What is your gender?", opts("Male", "Female")),
	personal(StepAgeGroup, "What is your age group?", opts("18-30", "31-50", "51-60", "60+")),
	personal(StepEmploymentType, "What is your employment type?",
		opts("Full Time", "Part Time", "Self Employed", "Retired")),
	endOfCategory(personal(StepDependents, "Do you have any dependents?", yesNo), "Continue to Lifestyle"),

	lifestyle(StepSmoking, "Do you smoke?", yesNo),
	lifestyle(StepAlcohol, "Do you consume alcohol?", opts("Never", "Regularly", "Occasionally")),
	lifestyle(StepExerciseFrequency, "How often do you exercise intentionally?",
		opts("Never", "1-2 Times", "3-4 Times", "Daily")),
	endOfCategory(lifestyle(StepFitnessLevel, "How would you describe your fitness level?",
		opts("Low", "Moderate", "High")), "Continue to Medical History"),

	medical(StepPreExistingConditions, "Do you have any pre-existing medical conditions?", yesNo),
	multiple(medical(StepKnownConditions, "Any known medical conditions?",
		opts("Diabetes", "Hypertension", "Heart Issues", NoneOption))),
	medical(StepHospitalizedPast5Years, "Have you been hospitalized in the past 5 years?", yesNo),
	endOfCategory(medical(StepRegularMedications, "Do you take any regular medications?", yesNo),
		"Continue to Financial"),

	financial(StepMonthlyIncome, "What is your monthly income?",
		opts("Less than 10K", "10K-20K", "20K-40K", "40K+")),
	financial(StepExistingInsurancePolicies, "Do you currently have any insurance policies?", yesNo),
	financial(StepInsuranceBeneficiary, "Are you buying insurance for yourself or family?",
		opts("Myself", "Self & Family", "Parents")),
	endOfCategory(multiple(financial(StepInsuranceTypesOwned, "What types of insurance do you own?",
		opts("Health", "Auto", "Life", "Home", "Travel"))), "Continue to Risk Profile"),

	{
		ID:           StepConfirmation,
		Category:     CategoryConfirmation,
		Title:        "Your Personalized Risk Profile is Ready!",
		Type:         TypeInfo,
		AdvanceLabel: "View Dashboard",
	},
}

var defaultCatalog = MustCatalog(defaultSteps)

// DefaultCatalog 保险风险画像问卷
func DefaultCatalog() *Catalog {
	return defaultCatalog
}
