package event

// Event types written to the outbox.
const (
	ConsultationCreated   = "consultation.created"
	ConsultationAccepted  = "consultation.accepted"
	ConsultationRejected  = "consultation.rejected"
	ConsultationCompleted = "consultation.completed"
	ConsultationCancelled = "consultation.cancelled"

	RelationshipEstablished = "relationship.established"
	RelationshipChanged     = "relationship.status_changed"

	EmergencyCreated          = "emergency.created"
	EmergencyEscalated        = "emergency.escalated"
	EmergencyAmbulanceCalled  = "emergency.ambulance_called"
	EmergencyReferralIssued   = "emergency.referral_generated"
	EmergencyContactAdded     = "emergency.contact_added"
	EmergencyContactResponded = "emergency.contact_responded"
	EmergencyResolved         = "emergency.resolved"

	PrescriptionIssued = "prescription.issued"
	MessageSent        = "message.sent"
)

// IsEmergency reports whether the event should page the on-call address.
func IsEmergency(eventType string) bool {
	switch eventType {
	case EmergencyCreated, EmergencyEscalated, EmergencyAmbulanceCalled:
		return true
	}
	return false
}
