package call

import (
	"fmt"

	"github.com/yoockh/medivoice/internal/models"
)

var openers = map[string]string{
	"General Physician":  "What brings you in today?",
	"Cardiologist":       "Are you having chest pain, shortness of breath, or palpitations?",
	"Dermatologist":      "Where is the skin issue located?",
	"Neurologist":        "Where exactly do you feel the problem?",
	"Orthopedist":        "Which area is bothering you?",
	"Pulmonologist":      "Are you experiencing shortness of breath, cough, or both?",
	"Gastroenterologist": "What digestive issue are you experiencing?",
	"Psychologist":       "How are you feeling emotionally today?",
}

// Greeting is the scripted opening turn for a doctor persona.
func Greeting(d models.DoctorProfile) string {
	specialist := d.Specialist
	if specialist == "" {
		specialist = "Medical"
	}
	opener, ok := openers[d.Specialist]
	if !ok {
		opener = "How can I assist you today?"
	}
	return fmt.Sprintf("Hello, I'm your %s AI. %s", specialist, opener)
}
