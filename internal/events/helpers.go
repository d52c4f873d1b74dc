package events

import (
	"encoding/json"
	"fmt"
)

// SetAnomalyData sets the Data field with AnomalyData in a type-safe way.
func (e *Event) SetAnomalyData(data AnomalyData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AnomalyData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetAnomalyData retrieves AnomalyData from the Data field.
func (e *Event) GetAnomalyData() (*AnomalyData, error) {
	var data AnomalyData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AnomalyData: %w", err)
	}
	return &data, nil
}

// SetAlertData sets the Data field with AlertData in a type-safe way.
func (e *Event) SetAlertData(data AlertData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert AlertData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetAlertData retrieves AlertData from the Data field.
func (e *Event) GetAlertData() (*AlertData, error) {
	var data AlertData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse AlertData: %w", err)
	}
	return &data, nil
}

// SetInterventionData sets the Data field with InterventionData in a type-safe way.
func (e *Event) SetInterventionData(data InterventionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert InterventionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetInterventionData retrieves InterventionData from the Data field.
func (e *Event) GetInterventionData() (*InterventionData, error) {
	var data InterventionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse InterventionData: %w", err)
	}
	return &data, nil
}

// SetMonitoringData sets the Data field with MonitoringData in a type-safe way.
func (e *Event) SetMonitoringData(data MonitoringData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert MonitoringData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetMonitoringData retrieves MonitoringData from the Data field.
func (e *Event) GetMonitoringData() (*MonitoringData, error) {
	var data MonitoringData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse MonitoringData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to a map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
