package entity

// TaskLabel is one of the surgical training tasks the classifier can recognise.
type TaskLabel string

const (
	TaskCameraTarget         TaskLabel = "CameraTarget"
	TaskChickenThigh         TaskLabel = "ChickenThigh"
	TaskCystModel            TaskLabel = "CystModel"
	TaskGloveCut             TaskLabel = "GloveCut"
	TaskIdle                 TaskLabel = "Idle"
	TaskMovingIndividualAxes TaskLabel = "MovingIndividualAxes"
	TaskRingRollercoaster    TaskLabel = "RingRollercoaster"
	TaskSeaSpikes            TaskLabel = "SeaSpikes"
	TaskSuture               TaskLabel = "Suture"
)

// AllTaskLabels is sorted alphabetically; tie-breaking in the smoother
// relies on this order.
func AllTaskLabels() []TaskLabel {
	return []TaskLabel{
		TaskCameraTarget,
		TaskChickenThigh,
		TaskCystModel,
		TaskGloveCut,
		TaskIdle,
		TaskMovingIndividualAxes,
		TaskRingRollercoaster,
		TaskSeaSpikes,
		TaskSuture,
	}
}

func (t TaskLabel) Valid() bool {
	for _, l := range AllTaskLabels() {
		if t == l {
			return true
		}
	}
	return false
}

func (t TaskLabel) String() string {
	return string(t)
}
