package mqtt

import (
	"fmt"
	"strings"
)

// Topics live under {prefix}/device/{deviceId}/...

func TopicLifecycle(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/lifecycle", prefix, deviceID)
}

func TopicOnline(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/online", prefix, deviceID)
}

func TopicStatus(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/status", prefix, deviceID)
}

func TopicSpeak(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/speak", prefix, deviceID)
}

func TopicCapture(prefix, deviceID, requestID string) string {
	return fmt.Sprintf("%s/device/%s/capture/%s", prefix, deviceID, requestID)
}

func TopicCaptureResult(prefix, deviceID, requestID string) string {
	return fmt.Sprintf("%s/device/%s/capture_result/%s", prefix, deviceID, requestID)
}

func TopicCaptureResults(prefix, deviceID string) string {
	return fmt.Sprintf("%s/device/%s/capture_result/+", prefix, deviceID)
}

// ParseDeviceID extracts the device id from {prefix}/device/{deviceId}/{kind}/...
func ParseDeviceID(topic, prefix string) (string, error) {
	parts := strings.Split(topic, "/")
	prefixParts := strings.Split(prefix, "/")
	if len(parts) < len(prefixParts)+3 {
		return "", fmt.Errorf("invalid topic: %s", topic)
	}
	for i, p := range prefixParts {
		if parts[i] != p {
			return "", fmt.Errorf("topic prefix mismatch: %s", topic)
		}
	}
	if parts[len(prefixParts)] != "device" {
		return "", fmt.Errorf("invalid topic pattern: %s", topic)
	}
	return parts[len(prefixParts)+1], nil
}

// ParseRequestID returns the last topic level.
func ParseRequestID(topic string) string {
	parts := strings.Split(topic, "/")
	return parts[len(parts)-1]
}
