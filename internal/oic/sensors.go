package oic

import "strings"

// MynewtSensorPrefix prefixes the resource types of sensors exposed by the
// Mynewt sensor framework.
const MynewtSensorPrefix = "x.mynewt.snsr."

// RTBinarySwitch is the resource type of on/off actuators.
const RTBinarySwitch = "oic.r.switch.binary"

// Mynewt sensor resource types
const (
	RTLinearAccelerometer = MynewtSensorPrefix + "lacc"
	RTAccelerometer       = MynewtSensorPrefix + "acc"
	RTMagnetometer        = MynewtSensorPrefix + "mag"
	RTLight               = MynewtSensorPrefix + "lt"
	RTTemperature         = MynewtSensorPrefix + "tmp"
	RTAmbientTemperature  = MynewtSensorPrefix + "ambtmp"
	RTRelativeHumidity    = MynewtSensorPrefix + "rhmty"
	RTPressure            = MynewtSensorPrefix + "psr"
	RTColor               = MynewtSensorPrefix + "col"
	RTGyroscope           = MynewtSensorPrefix + "gyr"
	RTEuler               = MynewtSensorPrefix + "eul"
	RTGravity             = MynewtSensorPrefix + "grav"
	RTRotationVector      = MynewtSensorPrefix + "quat"
)

var sensorNames = map[string]string{
	RTLinearAccelerometer: "Linear Accelerometer",
	RTAccelerometer:       "Accelerometer",
	RTMagnetometer:        "Magnetometer",
	RTLight:               "Light Sensor",
	RTTemperature:         "Temperature Sensor",
	RTAmbientTemperature:  "Ambient Temperature Sensor",
	RTRelativeHumidity:    "Relative Humidity Sensor",
	RTPressure:            "Pressure Sensor",
	RTColor:               "Color Sensor",
	RTGyroscope:           "Gyroscope",
	RTEuler:               "Euler Sensor",
	RTGravity:             "Gravity Sensor",
	RTRotationVector:      "Rotation Vector (Quaternion)",
}

// SensorResourceType returns the first Mynewt sensor type in rts.
func SensorResourceType(rts []string) (string, bool) {
	for _, rt := range rts {
		if strings.HasPrefix(rt, MynewtSensorPrefix) {
			return rt, true
		}
	}
	return "", false
}

// IsSensor reports whether rts contains a Mynewt sensor type.
func IsSensor(rts []string) bool {
	_, ok := SensorResourceType(rts)
	return ok
}

// IsSmartDevice reports whether rts describes a controllable actuator.
func IsSmartDevice(rts []string) bool {
	for _, rt := range rts {
		if rt == RTBinarySwitch {
			return true
		}
	}
	return false
}

// ReadableName returns a display name for a resource: the sensor title
// for known Mynewt sensors, the path otherwise.
func ReadableName(path string, rts []string) string {
	rt, ok := SensorResourceType(rts)
	if !ok {
		return path
	}
	if name, ok := sensorNames[rt]; ok {
		return name
	}
	return path
}
