// Package google mirrors the scheduling board into a Google Sheet that
// warehouse staff read. The mirror is one-way: the sheet is overwritten on
// every sync and never read back.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"dispatchboard/internal/worker"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const scheduleSheetName = "Schedule"

type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewSheetsService authenticates with a service-account credentials file.
func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := config.Client(ctx)

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %v", err)
	}

	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
	}, nil
}

// TestConnection reads the first cell to verify the account can see the sheet.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, scheduleSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %v", err)
	}
	return nil
}

// GetServiceAccountEmail extracts the account email from the credentials
// file, used in setup instructions for sharing the spreadsheet.
func (s *SheetsService) GetServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}

	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}

	return creds.ClientEmail, nil
}

// SyncSchedule overwrites the sheet with the given date's rows. The full
// clear-then-write keeps the mirror consistent with the board no matter how
// many cards moved since the last sync.
func (s *SheetsService) SyncSchedule(date string, rows []worker.ScheduleRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	values := [][]interface{}{
		{"Date", "Truck", "Time Window", "Position", "Customer", "Address", "Status", "Note"},
	}
	for _, r := range rows {
		values = append(values, []interface{}{
			date,
			r.TruckName,
			r.TimeSlot,
			r.Position,
			r.CustomerName,
			r.Address,
			r.Status,
			r.Label,
		})
	}

	clearRange := scheduleSheetName + "!A:H"
	if _, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("failed to clear schedule sheet: %v", err)
	}

	rangeData := fmt.Sprintf("%s!A1:H%d", scheduleSheetName, len(values))
	valueRange := &sheets.ValueRange{
		Values: values,
	}

	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData, valueRange).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write schedule sheet: %v", err)
	}
	return nil
}
