package telemetry

// SessionAggregate is a fully-loaded session with every child record, as
// re-read from the store. The analysis trigger rebuilds its request payload
// from this, never from the original wire bytes.
type SessionAggregate struct {
	Session     *SensorDataSession
	Vitals      []*VitalSignsSample
	Motion      []*MotionSample
	Assessment  *HealthAssessment
	Behavior    *BehaviorAnalysis
	Media       *MediaAnalysis
	AudioEvents []*AudioEvent
	VideoEvents []*VideoEvent
	Summary     *SummaryStatistics
	Status      *SystemStatus
}
