// Package mqtt provides MQTT client connectivity for the BleBox bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge talks to Gray Logic Core only through the broker:
//
//	BleBox devices ↔ bridge ↔ MQTT Broker ↔ Gray Logic Core
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, &mqtt.Will{Topic: topic, Payload: lwt})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllBridgeStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
