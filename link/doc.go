// Package link implements the acoustic frame transport: the LZNT1 codec,
// message chunking/reassembly, and the retransmission controller that sit
// between an application and an opaque audio modem.
package link
