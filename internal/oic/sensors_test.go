package oic

import "testing"

func TestReadableName(t *testing.T) {
	tests := []struct {
		path string
		rts  []string
		want string
	}{
		{"/bme280_0/ambtmp", []string{"oic.r.sensor", RTAmbientTemperature}, "Ambient Temperature Sensor"},
		{"/bno055_0/quat", []string{RTRotationVector}, "Rotation Vector (Quaternion)"},
		{"/tsl2561_0/lt", []string{RTLight}, "Light Sensor"},
		{"/x/unknown", []string{MynewtSensorPrefix + "unknown"}, "/x/unknown"},
		{"/light/1", []string{RTBinarySwitch}, "/light/1"},
		{"/empty", nil, "/empty"},
	}
	for _, tt := range tests {
		if got := ReadableName(tt.path, tt.rts); got != tt.want {
			t.Errorf("ReadableName(%q, %v) = %q, want %q", tt.path, tt.rts, got, tt.want)
		}
	}
}

func TestClassification(t *testing.T) {
	tests := []struct {
		rts         []string
		sensor      bool
		smartDevice bool
	}{
		{[]string{RTAccelerometer}, true, false},
		{[]string{"oic.r.light", RTBinarySwitch}, false, true},
		{[]string{"oic.wk.p"}, false, false},
	}
	for _, tt := range tests {
		if got := IsSensor(tt.rts); got != tt.sensor {
			t.Errorf("IsSensor(%v) = %v, want %v", tt.rts, got, tt.sensor)
		}
		if got := IsSmartDevice(tt.rts); got != tt.smartDevice {
			t.Errorf("IsSmartDevice(%v) = %v, want %v", tt.rts, got, tt.smartDevice)
		}
	}

	rt, ok := SensorResourceType([]string{"oic.r.sensor", RTGyroscope, RTGravity})
	if !ok || rt != RTGyroscope {
		t.Errorf("SensorResourceType() = %q, %v, want %q, true", rt, ok, RTGyroscope)
	}
}
