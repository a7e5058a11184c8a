package ledger

// ABI surface of the sealed-bid RFP contract. Only the entry points the
// client consumes are declared; the deployed contract may carry more.
const contractABI = `[
  {"type":"function","name":"rfpCount","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"rfps","stateMutability":"view",
   "inputs":[{"name":"rfpId","type":"uint256"}],
   "outputs":[
     {"name":"creator","type":"address"},
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"submissionDeadline","type":"uint256"},
     {"name":"revealDeadline","type":"uint256"},
     {"name":"encryptionKey","type":"string"},
     {"name":"bidCount","type":"uint256"},
     {"name":"organizationId","type":"uint256"}]},
  {"type":"function","name":"bids","stateMutability":"view",
   "inputs":[{"name":"rfpId","type":"uint256"},{"name":"index","type":"uint256"}],
   "outputs":[
     {"name":"bidder","type":"address"},
     {"name":"encryptedBid","type":"bytes"},
     {"name":"revealed","type":"bool"},
     {"name":"plaintextBid","type":"string"}]},
  {"type":"function","name":"getRFPEncryptionKey","stateMutability":"view",
   "inputs":[{"name":"rfpId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"createRFP","stateMutability":"nonpayable",
   "inputs":[
     {"name":"title","type":"string"},
     {"name":"description","type":"string"},
     {"name":"submissionDeadline","type":"uint256"},
     {"name":"revealDeadline","type":"uint256"},
     {"name":"encryptionKey","type":"string"},
     {"name":"organizationId","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"submitBid","stateMutability":"nonpayable",
   "inputs":[{"name":"rfpId","type":"uint256"},{"name":"encryptedBid","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"revealAllBids","stateMutability":"nonpayable",
   "inputs":[{"name":"rfpId","type":"uint256"},{"name":"plaintextBids","type":"string[]"}],
   "outputs":[]},
  {"type":"function","name":"orgCount","stateMutability":"view","inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"orgs","stateMutability":"view",
   "inputs":[{"name":"orgId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"addOrganization","stateMutability":"nonpayable",
   "inputs":[{"name":"name","type":"string"}],
   "outputs":[]},
  {"type":"function","name":"getOrganization","stateMutability":"view",
   "inputs":[{"name":"orgId","type":"uint256"}],
   "outputs":[{"name":"name","type":"string"},{"name":"rfpIds","type":"uint256[]"}]}
]`
