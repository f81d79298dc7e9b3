// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import "github.com/pdiddy/medassist/pkg/types"

// vocabulary maps each specialty to lowercase terms, matched as whole
// words against article titles and keywords.
var vocabulary = map[types.Specialty][]string{
	types.SpecialtyCardiology: {
		"cardiology", "cardiac", "cardiovascular", "heart", "coronary", "myocardial",
		"arrhythmia", "atrial fibrillation", "hypertension", "heart failure", "atherosclerosis",
	},
	types.SpecialtyEndocrinology: {
		"endocrinology", "diabetes", "diabetes mellitus", "insulin", "glycemic", "thyroid",
		"obesity", "metformin", "hba1c", "glucose", "adrenal", "pituitary",
	},
	types.SpecialtyNeurology: {
		"neurology", "neurological", "brain", "stroke", "epilepsy", "seizure", "dementia",
		"alzheimer", "parkinson", "migraine", "multiple sclerosis", "neuropathy",
	},
	types.SpecialtyOncology: {
		"oncology", "cancer", "tumor", "tumour", "carcinoma", "neoplasms", "chemotherapy",
		"lymphoma", "leukemia", "metastatic", "radiotherapy", "immunotherapy",
	},
	types.SpecialtyPediatrics: {
		"pediatrics", "pediatric", "paediatric", "child", "children", "infant", "neonatal",
		"adolescent", "newborn",
	},
	types.SpecialtyPsychiatry: {
		"psychiatry", "psychiatric", "depression", "depressive", "anxiety", "schizophrenia",
		"bipolar", "mental health", "antidepressant", "suicide",
	},
	types.SpecialtyDermatology: {
		"dermatology", "skin", "psoriasis", "eczema", "dermatitis", "melanoma", "acne",
	},
	types.SpecialtyInfectiousDisease: {
		"infection", "infectious", "bacterial", "viral", "antibiotic", "antimicrobial",
		"sepsis", "hiv", "covid", "tuberculosis", "vaccine",
	},
	types.SpecialtyPulmonology: {
		"pulmonary", "lung", "respiratory", "asthma", "copd", "pneumonia", "bronchitis",
		"fibrosis", "ventilation",
	},
}
