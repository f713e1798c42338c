package emergency

import (
	"bytes"
	"fmt"
	"text/template"
	"time"
)

const timeLayout = "02 Jan 2006 15:04 MST"

var referralTemplate = template.Must(template.New("referral").Parse(`REFERRAL LETTER

Date: {{.GeneratedAt}}
To: Emergency Department, {{.HospitalName}}
{{- with .HospitalAddress}}
    {{.}}{{end}}
{{- with .HospitalPhone}}
    Tel. {{.}}{{end}}

Re: {{.PatientName}} ({{.PatientEmail}})
Consultation: {{.ConsultationID}}
Emergency: {{.EmergencyID}}

Dear colleague,

I am referring the above patient, seen by teleconsultation for {{.Complaint}}, for urgent
in-person assessment.

Emergency level: {{.Level}}
Reported: {{.ReportedAt}}
{{- with .EscalatedAt}}
Escalated: {{.}}{{end}}
{{- with .AmbulanceCalledAt}}
Ambulance called: {{.}}{{end}}
Reason: {{.Reason}}

Clinical summary:
{{.Description}}

Yours sincerely,

{{.DoctorName}}
{{- with .Specialization}}
{{.}}{{end}}
`))

type referralData struct {
	GeneratedAt       string
	HospitalName      string
	HospitalAddress   string
	HospitalPhone     string
	PatientName       string
	PatientEmail      string
	ConsultationID    string
	EmergencyID       string
	Complaint         string
	Description       string
	Level             string
	Reason            string
	ReportedAt        string
	EscalatedAt       string
	AmbulanceCalledAt string
	DoctorName        string
	Specialization    string
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func renderReferral(data referralData) (string, error) {
	var buf bytes.Buffer
	if err := referralTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render referral letter: %w", err)
	}
	return buf.String(), nil
}
