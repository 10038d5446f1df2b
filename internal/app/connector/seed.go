package connector

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vetbridge/internal/infrastructure/dbf"
)

var (
	ClientFields = []dbf.Field{
		{Name: "CLIENT_ID", Type: dbf.Character, Length: 10},
		{Name: "FIRST_NAME", Type: dbf.Character, Length: 50},
		{Name: "LAST_NAME", Type: dbf.Character, Length: 50},
		{Name: "PHONE", Type: dbf.Character, Length: 20},
		{Name: "EMAIL", Type: dbf.Character, Length: 100},
	}
	PatientFields = []dbf.Field{
		{Name: "PATIENT_ID", Type: dbf.Character, Length: 10},
		{Name: "NAME", Type: dbf.Character, Length: 50},
		{Name: "SPECIES", Type: dbf.Character, Length: 20},
		{Name: "BREED", Type: dbf.Character, Length: 50},
		{Name: "BIRTHDATE", Type: dbf.Date},
		{Name: "CLIENT_ID", Type: dbf.Character, Length: 10},
	}
	ScheduleFields = []dbf.Field{
		{Name: "APPT_ID", Type: dbf.Character, Length: 10},
		{Name: "PATIENT_ID", Type: dbf.Character, Length: 10},
		{Name: "START_TIME", Type: dbf.Date},
		{Name: "NOTE", Type: dbf.Character, Length: 100},
		{Name: "STATUS", Type: dbf.Character, Length: 20},
	}
)

var (
	seedFirstNames = []string{"John", "Jane", "Maria", "Oliver", "Amelia", "Noah"}
	seedLastNames  = []string{"Doe", "Smith", "Garcia", "Brown", "Wilson", "Taylor"}
	seedPets       = []struct{ name, species, breed string }{
		{"Buddy", "Canine", "Golden Retriever"},
		{"Mittens", "Feline", "Tabby"},
		{"Rex", "Canine", "German Shepherd"},
		{"Luna", "Feline", "Siamese"},
		{"Kiwi", "Avian", "Budgerigar"},
	}
	seedNotes = []string{"Annual Checkup", "Vaccination", "Dental Cleaning", "Follow-up"}
)

// Seed записывает в dir тестовые таблицы Client.dbf, Patient.dbf и
// Schedule.dbf: patients пациентов, по одному приему на каждого и
// клиентов вдвое меньше.
func Seed(dir string, patients int, now time.Time) error {
	if patients <= 0 {
		return fmt.Errorf("число пациентов должно быть положительным, получено %d", patients)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания каталога: %w", err)
	}

	clients := (patients + 1) / 2
	clientRows := make([]dbf.Row, clients)
	for i := range clientRows {
		first := seedFirstNames[i%len(seedFirstNames)]
		last := seedLastNames[i%len(seedLastNames)]
		clientRows[i] = dbf.Row{Values: map[string]any{
			"CLIENT_ID":  clientID(i),
			"FIRST_NAME": first,
			"LAST_NAME":  last,
			"PHONE":      fmt.Sprintf("555-%04d", i+101),
			"EMAIL":      fmt.Sprintf("%s.%s%d@example.com", first, last, i+1),
		}}
	}

	patientRows := make([]dbf.Row, patients)
	scheduleRows := make([]dbf.Row, patients)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := range patientRows {
		pet := seedPets[i%len(seedPets)]
		patientRows[i] = dbf.Row{Values: map[string]any{
			"PATIENT_ID": fmt.Sprintf("P%04d", i+1),
			"NAME":       pet.name,
			"SPECIES":    pet.species,
			"BREED":      pet.breed,
			"BIRTHDATE":  today.AddDate(-(i%12)-1, -(i % 11), 0),
			"CLIENT_ID":  clientID(i % clients),
		}}

		status := "Scheduled"
		if i%3 == 1 {
			status = "Completed"
		}
		scheduleRows[i] = dbf.Row{Values: map[string]any{
			"APPT_ID":    fmt.Sprintf("A%04d", i+1),
			"PATIENT_ID": fmt.Sprintf("P%04d", i+1),
			"START_TIME": today.AddDate(0, 0, i%30),
			"NOTE":       seedNotes[i%len(seedNotes)],
			"STATUS":     status,
		}}
	}

	tables := []struct {
		file   string
		fields []dbf.Field
		rows   []dbf.Row
	}{
		{"Client.dbf", ClientFields, clientRows},
		{"Patient.dbf", PatientFields, patientRows},
		{"Schedule.dbf", ScheduleFields, scheduleRows},
	}
	for _, t := range tables {
		if err := dbf.Create(filepath.Join(dir, t.file), t.fields, t.rows); err != nil {
			return fmt.Errorf("ошибка записи %s: %w", t.file, err)
		}
	}
	return nil
}

func clientID(i int) string {
	return fmt.Sprintf("CL%03d", i+1)
}
