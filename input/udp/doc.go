// Package udp provides the udp source, which turns every datagram received on
// a UDP socket into a pipeline message.
//
// Settings:
//
//	port             UDP port; 0 picks a free one (required)
//	bind             local address (default 0.0.0.0)
//	maxDatagramSize  read buffer size in bytes; longer datagrams are truncated (default 65536)
//
// The socket is bound in Initialize, with retries for transient failures such
// as a port still held by a previous process, and closed by Shutdown. The read
// loop uses a short deadline so it notices shutdown without a packet arriving.
//
// With a metrics registry, packets, bytes and socket errors are counted per
// component under micropipe_udp_*.
package udp
