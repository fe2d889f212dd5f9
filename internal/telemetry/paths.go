package telemetry

// Signal K paths for the inputs and outputs of the wind pipeline.
const (
	PathApparentWindSpeed = "environment.wind.speedApparent"
	PathApparentWindAngle = "environment.wind.angleApparent"
	PathTrueWindSpeed     = "environment.wind.speedTrue"
	PathTrueWindAngle     = "environment.wind.angleTrueWater"
	PathGroundWindSpeed   = "environment.wind.speedOverGround"
	PathGroundWindDir     = "environment.wind.directionTrue"
	PathSpeedThroughWater = "navigation.speedThroughWater"
	PathSpeedOverGround   = "navigation.speedOverGround"
	PathCourseOverGround  = "navigation.courseOverGroundTrue"
	PathHeadingTrue       = "navigation.headingTrue"
	PathAttitude          = "navigation.attitude"
	PathLeewayAngle       = "navigation.leewayAngle"
)
