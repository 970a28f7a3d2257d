// Package weather looks up current conditions on OpenWeatherMap.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

type Report struct {
	Location    string  `json:"location"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
}

// Source is what the chat orchestrator needs from a weather backend.
type Source interface {
	Current(ctx context.Context, location string) (Report, error)
}

type Client struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type owmResp struct {
	Name string `json:"name"`
	Main struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Message string `json:"message,omitempty"`
}

func (c *Client) Current(ctx context.Context, location string) (Report, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return Report{}, errors.New("weather: api key is required")
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")
	q.Set("lang", "pt_br")
	u := fmt.Sprintf("%s/weather?%s", strings.TrimRight(c.BaseURL, "/"), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Report{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Report{}, err
	}
	defer resp.Body.Close()

	var decoded owmResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Report{}, fmt.Errorf("weather: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Report{}, fmt.Errorf("weather: status %d: %s", resp.StatusCode, decoded.Message)
	}

	r := Report{Location: decoded.Name, Temperature: decoded.Main.Temp}
	if r.Location == "" {
		r.Location = location
	}
	if len(decoded.Weather) > 0 {
		r.Description = decoded.Weather[0].Description
	}
	return r, nil
}
