package cache

import "fmt"

// Key builders are centralized so read and invalidation sites cannot drift.

func PlanKey(planID int64) string {
	return fmt.Sprintf("mobileshop:plan:%d", planID)
}

func DeviceKey(deviceID int64) string {
	return fmt.Sprintf("mobileshop:device:%d", deviceID)
}

func NumberKey(numberID int64) string {
	return fmt.Sprintf("mobileshop:number:%d", numberID)
}

func AvailableNumbersKey() string {
	return "mobileshop:numbers:available"
}
