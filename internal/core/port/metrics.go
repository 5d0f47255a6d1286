package port

type Metrics interface {
	// ComponentsRegistered reports the current size of the component map.
	ComponentsRegistered(n int)
	// ComponentCleaned records one swept registration and whether its cleanup failed.
	ComponentCleaned(failed bool)
	// ActionPerformed records one IPC action handled by the receiver.
	ActionPerformed(action string)
}
