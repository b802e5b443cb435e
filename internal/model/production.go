package model

import "time"

// MachineStatusActive is the status value of machines that are in use.
const MachineStatusActive = "actief"

type Machine struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Inspection is one quality control check recorded on the floor.
type Inspection struct {
	ID                int64     `json:"id"`
	MachineID         int64     `json:"machineId"`
	EmployeeName      string    `json:"employeeName"`
	ProductNumber     string    `json:"productNumber"`
	CurrentWeight     float64   `json:"currentWeight"`
	ControlWeight     float64   `json:"controlWeight"`
	MeetsRequirements bool      `json:"meetsRequirements"`
	Comments          string    `json:"comments"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ProblemReport is a reported machine problem and, once solved, its solution.
type ProblemReport struct {
	ID          int64     `json:"id"`
	MachineID   int64     `json:"machineId"`
	ProductCode string    `json:"productCode"`
	Description string    `json:"description"`
	Solved      bool      `json:"solved"`
	Solution    string    `json:"solution"`
	ReportedBy  string    `json:"reportedBy"`
	ReportedAt  time.Time `json:"reportedAt"`
}
