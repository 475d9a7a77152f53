package blockchain

// PaymentsABI is the ABI fragment of the payments contract that the verifier
// decodes. The contract emits PaymentReceived for every accepted payment.
const PaymentsABI = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"address","name":"merchant","type":"address"},{"indexed":true,"internalType":"address","name":"payer","type":"address"},{"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"timestamp","type":"uint256"}],"name":"PaymentReceived","type":"event"},{"inputs":[{"internalType":"address","name":"merchant","type":"address"}],"name":"pay","outputs":[],"stateMutability":"payable","type":"function"}]`

const paymentReceivedEvent = "PaymentReceived"
