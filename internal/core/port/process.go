package port

// InstanceCounter reports how many processes of the running executable exist,
// the caller included.
type InstanceCounter interface {
	CountRunningInstances() (int, error)
}
