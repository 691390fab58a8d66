package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iksvihii/daily-watt-sub000/apperror"
	"github.com/Iksvihii/daily-watt-sub000/logger"
	"github.com/Iksvihii/daily-watt-sub000/models"
)

const openMeteoDailyFields = "temperature_2m_mean,temperature_2m_max,temperature_2m_min"

// OpenMeteoProvider reads the Open-Meteo historical archive
type OpenMeteoProvider struct {
	baseURL string
	client  *http.Client
}

// NewOpenMeteoProvider creates a provider for baseURL (for example https://archive-api.open-meteo.com/v1)
func NewOpenMeteoProvider(baseURL string, timeout time.Duration) *OpenMeteoProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OpenMeteoProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type openMeteoResponse struct {
	Daily struct {
		Time    []string   `json:"time"`
		TempAvg []*float64 `json:"temperature_2m_mean"`
		TempMax []*float64 `json:"temperature_2m_max"`
		TempMin []*float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

func (p *OpenMeteoProvider) GetWeather(ctx context.Context, lat, lon float64, from, to models.Date) ([]Day, error) {
	query := url.Values{}
	query.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("start_date", from.String())
	query.Set("end_date", to.String())
	query.Set("daily", openMeteoDailyFields)
	query.Set("timezone", "UTC")
	endpoint := p.baseURL + "/archive?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	logger.Debugf("Fetching weather %s..%s at %.4f,%.4f", from, to, lat, lon)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperror.Transient(err, "weather request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, apperror.Transient(nil, "weather provider answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperror.Transient(err, "malformed weather payload")
	}
	return payload.days()
}

func (r openMeteoResponse) days() ([]Day, error) {
	daily := r.Daily
	n := len(daily.Time)
	if len(daily.TempAvg) != n || len(daily.TempMax) != n || len(daily.TempMin) != n {
		return nil, apperror.Transient(nil, "malformed weather payload: series lengths differ")
	}

	days := make([]Day, 0, n)
	for i, raw := range daily.Time {
		date, err := models.ParseDate(raw)
		if err != nil {
			return nil, apperror.Transient(err, "malformed weather payload")
		}
		// Recent days are published as null until the archive catches up
		if daily.TempMin[i] == nil || daily.TempMax[i] == nil {
			continue
		}
		day := Day{
			Date:    date,
			TempMin: *daily.TempMin[i],
			TempMax: *daily.TempMax[i],
			Source:  models.SourceOpenMeteo,
		}
		if daily.TempAvg[i] != nil {
			day.TempAvg = *daily.TempAvg[i]
		} else {
			day.TempAvg = (day.TempMin + day.TempMax) / 2
		}
		days = append(days, day)
	}
	return days, nil
}
