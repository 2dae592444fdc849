package bambu

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const (
	publishTimeout = 15 * time.Second
	// disconnectGrace is handed to the MQTT client so in-flight traffic can
	// drain before teardown.
	disconnectGrace = 1000 // milliseconds
)

// printCommand is the "print" object of a project_file request, as the
// printer expects it on device/{serial}/request.
type printCommand struct {
	SequenceID    string `json:"sequence_id"`
	Command       string `json:"command"`
	Param         string `json:"param"`
	ProjectID     string `json:"project_id"`
	ProfileID     string `json:"profile_id"`
	TaskID        string `json:"task_id"`
	SubtaskID     string `json:"subtask_id"`
	SubtaskName   string `json:"subtask_name"`
	File          string `json:"file"`
	URL           string `json:"url"`
	MD5           string `json:"md5"`
	Timelapse     bool   `json:"timelapse"`
	BedType       string `json:"bed_type"`
	BedLevelling  bool   `json:"bed_levelling"`
	FlowCali      bool   `json:"flow_cali"`
	VibrationCali bool   `json:"vibration_cali"`
	LayerInspect  bool   `json:"layer_inspect"`
	UseAMS        bool   `json:"use_ams"`
}

type printRequest struct {
	Print printCommand `json:"print"`
}

func newPrintRequest(remoteName, projectID string, plate int) printRequest {
	if plate < 1 {
		plate = 1
	}
	return printRequest{Print: printCommand{
		SequenceID:    "0",
		Command:       "project_file",
		Param:         fmt.Sprintf("Metadata/plate_%d.gcode", plate),
		ProjectID:     projectID,
		ProfileID:     "0",
		TaskID:        "0",
		SubtaskID:     "0",
		File:          remoteName,
		URL:           "ftp://" + remoteName,
		Timelapse:     true,
		BedType:       "textured_pei_plate",
		BedLevelling:  true,
		FlowCali:      true,
		VibrationCali: true,
		LayerInspect:  true,
		UseAMS:        false,
	}}
}

// StartPrint tells the printer to begin printing remoteName, which must
// already have been uploaded. The message is published with QoS 1 and the
// call blocks until the broker acknowledges it; disconnecting right after a
// fire-and-forget publish can lose the message.
func (p *Printer) StartPrint(remoteName, projectID string, plate int) error {
	body, err := json.Marshal(newPrintRequest(remoteName, projectID, plate))
	if err != nil {
		return fmt.Errorf("encode print command: %w", err)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("ssl://%s:%d", p.Host, mqttPort)).
		SetUsername(username).
		SetPassword(p.AccessCode).
		SetTLSConfig(p.tlsConfig()).
		SetConnectTimeout(p.dialTimeout())

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(p.dialTimeout() + time.Second) {
		return fmt.Errorf("mqtt connect to %s timed out", p.Host)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer client.Disconnect(disconnectGrace)

	topic := fmt.Sprintf("device/%s/request", p.Serial)
	pub := client.Publish(topic, 1, false, body)
	if !pub.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := pub.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}

	log.Infof("Print command for %s sent to %s", remoteName, topic)
	return nil
}
