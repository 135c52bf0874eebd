package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	pathAgents       = "/locations/agents"
	pathDestinations = "/locations/doorstep-destinations"
	pathPrice        = "/delivery-charge/doorstep-package"
	pathPackage      = "/packages/agent-agent"
	pathTrack        = "/packages/track/"
)

// ID accepts carrier identifiers sent either as JSON numbers or numeric strings.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("carrier id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

type Agent struct {
	ID   ID      `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

type Destination struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

type DestinationList struct {
	Data []Destination `json:"data"`
}

// PriceQuote is the doorstep delivery charge. The carrier has answered with
// "price" and with "amount", at the top level or under "data".
type PriceQuote struct {
	Amount float64 `json:"amount"`
}

func (q *PriceQuote) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if data, ok := raw["data"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(data, &inner) == nil {
			for k, v := range inner {
				raw[k] = v
			}
		}
	}
	for _, key := range []string{"amount", "price", "deliveryFee"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		var n json.Number
		s := strings.Trim(string(v), `"`)
		if err := json.Unmarshal([]byte(s), &n); err != nil {
			continue
		}
		f, err := n.Float64()
		if err != nil {
			continue
		}
		q.Amount = f
		return nil
	}
	return nil
}

type PackageResponse struct {
	TrackingNumber string `json:"tracking_number"`
}

type TrackResponse struct {
	Status string `json:"status"`
}

// Agents lists pickup agent locations.
func (c *Client) Agents(ctx context.Context) ([]Agent, Result) {
	var out []Agent
	res := c.Get(ctx, pathAgents, nil).decodeInto(&out)
	return out, res
}

// Destinations lists doorstep destinations.
func (c *Client) Destinations(ctx context.Context) (DestinationList, Result) {
	var out DestinationList
	res := c.Get(ctx, pathDestinations, nil).decodeInto(&out)
	return out, res
}

// DeliveryPrice quotes a doorstep delivery from an agent to a destination.
func (c *Client) DeliveryPrice(ctx context.Context, senderAgentID string, destinationID int64) (PriceQuote, Result) {
	var out PriceQuote
	res := c.Get(ctx, pathPrice, map[string]any{
		"senderAgentID":         senderAgentID,
		"doorstepDestinationID": destinationID,
	}).decodeInto(&out)
	return out, res
}

// CreatePackage books an agent-to-agent package for the business.
func (c *Client) CreatePackage(ctx context.Context, businessID string, payload map[string]any) (PackageResponse, Result) {
	var out PackageResponse
	res := c.Post(ctx, pathPackage, payload, map[string]any{"b_id": businessID}).decodeInto(&out)
	return out, res
}

// TrackPackage fetches the current carrier status of a shipment.
func (c *Client) TrackPackage(ctx context.Context, trackID string) (TrackResponse, Result) {
	var out TrackResponse
	res := c.Get(ctx, pathTrack+url.PathEscape(trackID), nil).decodeInto(&out)
	return out, res
}
