// Package robot drives the two-joint manipulator over a Feetech STS bus.
package robot

import "fmt"

// JointName identifies a manipulator joint.
type JointName string

// Joint names, in servo ID order.
const (
	Joint1 JointName = "joint1"
	Joint2 JointName = "joint2"
)

// AllJoints returns all joint names in order.
func AllJoints() []JointName {
	return []JointName{Joint1, Joint2}
}

// JointByIndex maps the 1-based joint index used by command sinks to a name.
func JointByIndex(index int) (JointName, error) {
	joints := AllJoints()
	if index < 1 || index > len(joints) {
		return "", fmt.Errorf("joint index %d out of range [1, %d]", index, len(joints))
	}
	return joints[index-1], nil
}
